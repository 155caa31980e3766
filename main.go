package main

import "github.com/classtrack/apiserver/cmd"

func main() {
	cmd.Execute()
}
