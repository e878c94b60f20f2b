// Command depgraph runs the work item dependency graph service.
package main

import (
	"log"

	"depgraph.evalgo.org/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
