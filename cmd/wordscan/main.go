package main

import "github.com/MeKo-Tech/wordscan/cmd/wordscan/cmd"

func main() {
	cmd.Execute()
}
