package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInit(t *testing.T) {
	//check if commands are registered
	commands = []command{&analyzeCommand{}, &partitionCommand{}}
	assert.Equal(t, len(commands), 2)
}

func TestLoad(t *testing.T) {
	content := []byte(`
nodes:
  - id: src
    name: generator
    latency: 2ms
  - id: out
    name: recorder
connections:
  - from: src
    to: out
`)
	dir, err := ioutil.TempDir("", "graphctl")
	assert.Nil(t, err)
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "graph.yml")
	assert.Nil(t, ioutil.WriteFile(file, content, 0644))

	nodes, edges, latency, err := load(file)
	assert.Nil(t, err)
	assert.Equal(t, []string{"src", "out"}, nodes)
	assert.Equal(t, 1, len(edges))
	assert.Equal(t, "src", edges[0].From)
	assert.Equal(t, "out", edges[0].To)
	assert.Equal(t, "2ms", latency("src").String())
	assert.Equal(t, "0s", latency("out").String())

	_, _, _, err = load("")
	assert.NotNil(t, err)
	_, _, _, err = load(filepath.Join(dir, "missing.yml"))
	assert.NotNil(t, err)
}
