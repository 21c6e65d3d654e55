package main

import (
	"fmt"

	"github.com/finbook/event-pipeline-service/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
