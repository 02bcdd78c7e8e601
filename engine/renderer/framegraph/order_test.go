package framegraph

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type versionLog struct {
	producers map[uint32]string
	readers   map[uint32][]string
}

// TestRandomGraphRespectsDependencies builds a random graph, closes it with
// a pass writing every resource, and checks that the submission order puts
// each producer before its readers and each reader before the next writer.
func TestRandomGraphRespectsDependencies(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			fg, _ := newTestGraph()

			var latest []Resource[Image]
			logs := map[ResourceIndex]*versionLog{}
			var before [][2]string

			read := func(pass string, r Resource[Image]) {
				l := logs[r.ID()]
				before = append(before, [2]string{l.producers[r.Version()], pass})
				l.readers[r.Version()] = append(l.readers[r.Version()], pass)
			}
			write := func(pass string, r Resource[Image]) {
				l := logs[r.ID()]
				before = append(before, [2]string{l.producers[r.Version()], pass})
				for _, reader := range l.readers[r.Version()] {
					before = append(before, [2]string{reader, pass})
				}
				l.producers[r.Version()+1] = pass
			}

			passes := 10 + rng.Intn(30)
			for i := 0; i < passes; i++ {
				name := fmt.Sprintf("p%d", i)
				_, err := AddPass(fg, name, func(tb *TaskBuilder) (noOutput, ExecutablePass) {
					touched := map[int]bool{}
					for n := rng.Intn(4); n > 0 && len(latest) > 0; n-- {
						j := rng.Intn(len(latest))
						if touched[j] {
							continue
						}
						touched[j] = true
						if rng.Intn(2) == 0 {
							read(name, latest[j])
							Read(tb, latest[j])
						} else {
							write(name, latest[j])
							latest[j] = Write(tb, latest[j])
						}
					}
					if len(touched) == 0 || rng.Intn(3) == 0 {
						img := tb.CreateImage("", colorDesc)
						logs[img.ID()] = &versionLog{
							producers: map[uint32]string{0: name},
							readers:   map[uint32][]string{},
						}
						latest = append(latest, img)
					}
					return noOutput{}, nil
				})
				require.NoError(t, err)
			}
			_, err := AddPass(fg, "present", func(tb *TaskBuilder) (noOutput, ExecutablePass) {
				for j := range latest {
					write("present", latest[j])
					latest[j] = Write(tb, latest[j])
				}
				return noOutput{}, nil
			})
			require.NoError(t, err)

			order, err := fg.SubmissionOrder()
			require.NoError(t, err)
			require.Len(t, order, passes+1)
			assert.Equal(t, "present", order[len(order)-1])

			pos := map[string]int{}
			for i, name := range order {
				_, dup := pos[name]
				require.False(t, dup, "%s scheduled twice", name)
				pos[name] = i
			}
			for _, c := range before {
				if c[0] == c[1] {
					continue
				}
				assert.Less(t, pos[c[0]], pos[c[1]], "%s must run before %s", c[0], c[1])
			}
		})
	}
}

func TestSubmissionOrderIsDeterministic(t *testing.T) {
	build := func() []string {
		fg, _ := newTestGraph()
		img, err := AddPass(fg, "A", func(tb *TaskBuilder) (Resource[Image], ExecutablePass) {
			return tb.CreateImage("color", colorDesc), nil
		})
		require.NoError(t, err)
		for _, name := range []string{"B", "C", "D"} {
			_, err = AddPass(fg, name, func(tb *TaskBuilder) (noOutput, ExecutablePass) {
				Read(tb, img)
				return noOutput{}, nil
			})
			require.NoError(t, err)
		}
		_, err = AddPass(fg, "E", func(tb *TaskBuilder) (Resource[Image], ExecutablePass) {
			return Write(tb, img), nil
		})
		require.NoError(t, err)
		order, err := fg.SubmissionOrder()
		require.NoError(t, err)
		return order
	}

	first := build()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, build())
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, first)
}
