package config

import (
	"github.com/spf13/pflag"
)

type Config struct {
	ParentDir   string
	Name        string
	Description string
	Verbose     bool

	// Args holds the remaining positional arguments (the subcommand).
	Args []string
}

func NewConfig() *Config {
	c := &Config{}
	pflag.StringVarP(&c.ParentDir, "dir", "d", ".", "parent directory holding the store")
	pflag.StringVarP(&c.Name, "name", "n", "", "store name")
	pflag.StringVar(&c.Description, "description", "", "store description, used by create")
	pflag.BoolVarP(&c.Verbose, "verbose", "v", false, "debug logging")
	pflag.Parse()
	c.Args = pflag.Args()

	return c
}
