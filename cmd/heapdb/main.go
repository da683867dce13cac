package main

import (
	"context"

	"github.com/Blackdeer1524/heapdb/cmd/heapdb/app"
)

func main() {
	app.MustExecute(context.Background())
}
