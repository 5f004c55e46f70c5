package agents

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reelgate/internal/tools/builtin"
)

func TestSelectSpecialist(t *testing.T) {
	c := DefaultCatalog()

	tests := []struct {
		prompt string
		want   AgentID
	}{
		{"Create a face wash ad", Producer},
		{"Research the audience and competitors for a sunscreen", Researcher},
		{"Write a storyboard script with five scenes", Scriptwriter},
		{"Regenerate the stills for this project", ImageProducer},
		{"Animate segment 3 into a clip", VideoProducer},
		{"hello there", Producer},
		{"", Producer},
		// whole-word match only
		{"a shadowy figure", Producer},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			assert.Equal(t, tt.want, c.SelectSpecialist(TaskDescriptor{Prompt: tt.prompt}))
		})
	}
}

func TestSelectSpecialist_TieGoesToEarlierDefinition(t *testing.T) {
	c := NewCatalog(&File{
		Version: "1.0.0",
		Default: "b",
		Agents: []Definition{
			{Name: "a", Keywords: []string{"alpha"}},
			{Name: "b", Keywords: []string{"beta"}},
		},
	})
	assert.Equal(t, AgentID("a"), c.SelectSpecialist(TaskDescriptor{Prompt: "alpha beta"}))
	assert.Equal(t, AgentID("b"), c.SelectSpecialist(TaskDescriptor{Prompt: "gamma"}))
}

func TestSelectSpecialist_Phrase(t *testing.T) {
	c := NewCatalog(&File{
		Version: "1.0.0",
		Default: "b",
		Agents: []Definition{
			{Name: "a", Keywords: []string{"face wash"}},
			{Name: "b"},
		},
	})
	assert.Equal(t, AgentID("a"), c.SelectSpecialist(TaskDescriptor{Prompt: "New Face Wash launch"}))
}

func TestDefaultFile_ToolsAreBuiltins(t *testing.T) {
	f := DefaultFile()
	require.NoError(t, f.Validate())

	known := map[string]bool{}
	for _, n := range builtin.Names() {
		known[n] = true
	}
	for _, d := range f.Agents {
		assert.NotEmpty(t, d.Tools, d.Name)
		for _, tool := range d.Tools {
			assert.True(t, known[tool], "%s uses unknown tool %s", d.Name, tool)
		}
	}
}

func TestCatalog_GetReturnsSnapshot(t *testing.T) {
	c := DefaultCatalog()

	d, ok := c.Get(Producer)
	require.True(t, ok)
	d.Tools[0] = "mutated"

	again, _ := c.Get(Producer)
	assert.NotEqual(t, "mutated", again.Tools[0])

	_, ok = c.Get("nobody")
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	valid := `
version: "1.2.0"
default: writer
agents:
  - name: writer
    description: writes
    tools: [generate_concept]
    keywords: [script]
`
	f, err := Parse([]byte(valid))
	require.NoError(t, err)
	assert.Equal(t, AgentID("writer"), f.Default)
	assert.Equal(t, []string{"generate_concept"}, f.Agents[0].Tools)

	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{"major too new", "version: 2.0.0\nagents: [{name: a}]\n", ErrSchemaVersion},
		{"not semver", "version: latest\nagents: [{name: a}]\n", ErrSchemaVersion},
		{"no agents", "version: 1.0.0\n", ErrNoDefinitions},
		{"duplicate", "version: 1.0.0\ndefault: a\nagents: [{name: a}, {name: a}]\n", ErrDuplicateAgent},
		{"unnamed", "version: 1.0.0\nagents: [{description: x}]\n", ErrInvalidDefinition},
		{"missing default", "version: 1.0.0\ndefault: z\nagents: [{name: a}]\n", ErrUnknownDefault},
		{"implicit producer default", "version: 1.0.0\nagents: [{name: a}]\n", ErrUnknownDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = Parse([]byte("agents: [unclosed"))
	assert.Error(t, err)
}

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	write := func(content string) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	write("version: 1.0.0\ndefault: a\nagents: [{name: a}]\n")
	f, err := LoadFile(path)
	require.NoError(t, err)
	c := NewCatalog(f)

	w, err := NewWatcher(c, path)
	require.NoError(t, err)
	reloads := make(chan error, 10)
	w.OnReload(func(err error) { reloads <- err })
	require.NoError(t, w.Start())
	defer w.Stop()

	write("version: 1.0.0\ndefault: b\nagents: [{name: a}, {name: b}]\n")
	select {
	case err := <-reloads:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
	assert.Equal(t, AgentID("b"), c.Default())
	assert.Len(t, c.List(), 2)

	// a broken file keeps the previous definitions
	write("version: 9.0.0\nagents: [{name: x}]\n")
	select {
	case err := <-reloads:
		assert.ErrorIs(t, err, ErrSchemaVersion)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload")
	}
	assert.Equal(t, AgentID("b"), c.Default())
}

func TestCatalog_SelectSnapshotsUnderReload(t *testing.T) {
	c := DefaultCatalog()

	def, ok := c.Select(TaskDescriptor{Prompt: "Animate segment 3 into a clip"})
	require.True(t, ok)
	assert.Equal(t, VideoProducer, def.Name)
	assert.Contains(t, def.Tools, builtin.BatchGenerateVideos)

	swapped := &File{Version: "1.0.0", Default: "solo", Agents: []Definition{{Name: "solo", Tools: []string{builtin.WebResearch}}}}
	alternate := DefaultFile()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if i%2 == 0 {
				c.Replace(swapped)
			} else {
				c.Replace(alternate)
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		def, ok := c.Select(TaskDescriptor{Prompt: "Animate segment 3 into a clip"})
		require.True(t, ok, "selection lost during reload")
		assert.Contains(t, []AgentID{VideoProducer, "solo"}, def.Name)
	}
	close(stop)
	wg.Wait()
}
