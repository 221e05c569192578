package main

import "github.com/KaramelBytes/callreport-cli/cmd"

func main() {
	cmd.Execute()
}
