package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"

	"pipelined.dev/graph/topology"
)

// definition is the yaml schema of a graph file.
type definition struct {
	Nodes []struct {
		ID      string `yaml:"id"`
		Name    string `yaml:"name"`
		Latency string `yaml:"latency"`
	} `yaml:"nodes"`
	Connections []struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	} `yaml:"connections"`
}

type analyzeCommand struct {
	file string
}

//Implement graphctl command interface
func (cmd *analyzeCommand) Name() string {
	return "analyze"
}

func (cmd *analyzeCommand) Help() string {
	return "Show the topology report of a graph definition"
}

func (cmd *analyzeCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.file, "f", "", "graph definition yaml file (required)")
}

func (cmd *analyzeCommand) Run() error {
	nodes, edges, latency, err := load(cmd.file)
	if err != nil {
		return err
	}
	r, err := topology.Analyze(nodes, edges, latency)
	if err != nil {
		return err
	}
	fmt.Println(r.String())
	return nil
}

type partitionCommand struct {
	file string
}

func (cmd *partitionCommand) Name() string {
	return "partition"
}

func (cmd *partitionCommand) Help() string {
	return "Show independent chains of a graph definition"
}

func (cmd *partitionCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.file, "f", "", "graph definition yaml file (required)")
}

func (cmd *partitionCommand) Run() error {
	nodes, edges, latency, err := load(cmd.file)
	if err != nil {
		return err
	}
	chains, err := topology.Partition(nodes, edges, latency)
	if err != nil {
		return err
	}
	for i, chain := range chains {
		fmt.Printf("Chain %d (%v):\n", i+1, chain.Latency)
		for _, n := range chain.Nodes {
			fmt.Printf("\t%s\n", n)
		}
	}
	return nil
}

func load(file string) ([]string, []topology.Edge, func(string) time.Duration, error) {
	if file == "" {
		return nil, nil, nil, fmt.Errorf("Missing -f required flag")
	}
	content, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, nil, nil, err
	}
	var def definition
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, nil, nil, err
	}

	nodes := make([]string, 0, len(def.Nodes))
	latencies := make(map[string]time.Duration)
	for _, n := range def.Nodes {
		if n.ID == "" {
			return nil, nil, nil, fmt.Errorf("node without id")
		}
		nodes = append(nodes, n.ID)
		if n.Latency != "" {
			d, err := time.ParseDuration(n.Latency)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("node %s latency: %v", n.ID, err)
			}
			latencies[n.ID] = d
		}
	}
	edges := make([]topology.Edge, 0, len(def.Connections))
	for _, c := range def.Connections {
		edges = append(edges, topology.Edge{From: c.From, To: c.To})
	}
	latency := func(id string) time.Duration {
		return latencies[id]
	}
	return nodes, edges, latency, nil
}
