package assets

// Loader turns a file on disk into shader words.
type Loader interface {
	Load(path string) ([]uint32, error)
}
