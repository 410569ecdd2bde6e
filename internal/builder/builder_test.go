package builder

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderIsImmutable(t *testing.T) {
	disc := Discipline("Disc1", "testdiscs.disc1", "ns_ac__usecase")
	renamed := disc.WithName("Disc2").WithNamespaces("ns_b__usecase")

	assert.Equal(t, "Disc1", disc.Name())
	assert.Equal(t, []string{"ns_ac__usecase"}, disc.Namespaces())
	assert.Equal(t, "Disc2", renamed.Name())
	assert.Equal(t, []string{"ns_ac__usecase", "ns_b__usecase"}, renamed.Namespaces())

	ids := disc.Namespaces()
	ids[0] = "mutated"
	assert.Equal(t, "ns_ac__usecase", disc.Namespaces()[0])
}

func TestRebase(t *testing.T) {
	tree := Coupling("sub",
		Discipline("Disc1", "testdiscs.disc1", "ns_ac__usecase"),
		Discipline("Disc2", "testdiscs.disc1", "ns_b__usecase"),
	)

	rebased, err := tree.Rebase(func(id string) (string, error) {
		return strings.Replace(id, "usecase", "usecase.sc1", 1), nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"ns_ac__usecase.sc1", "ns_b__usecase.sc1"}, NamespaceIDs([]*Builder{rebased}))
	assert.Equal(t, []string{"ns_ac__usecase", "ns_b__usecase"}, NamespaceIDs([]*Builder{tree}), "template untouched")

	_, err = tree.Rebase(func(string) (string, error) { return "", errors.New("boom") })
	assert.ErrorContains(t, err, "builder 'Disc1': boom")
}

func TestDriverOptions(t *testing.T) {
	d := Driver("Eval", []*Builder{Discipline("Disc1", "m")}, FlattenSubprocess())
	assert.Equal(t, KindDriver, d.Kind())
	assert.True(t, d.Flatten())
	assert.False(t, d.Hidden())
	assert.True(t, d.Hide().Hidden())
	assert.Len(t, d.SubBuilders(), 1)
	assert.Equal(t, "driver", d.Kind().String())
}

func TestDescribe(t *testing.T) {
	lines := Describe([]*Builder{Driver("ms", []*Builder{Discipline("Disc1", "testdiscs.disc1")})})
	assert.Equal(t, []string{"driver ms", "  discipline Disc1 (testdiscs.disc1)"}, lines)
}
