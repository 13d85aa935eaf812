package main

import "fmt"

var buildVersion = "dev"

type versionCmd struct{}

func (cmd *versionCmd) Run() error {
	fmt.Println("stk", buildVersion)
	return nil
}
