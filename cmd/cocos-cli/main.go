package main

import (
	"context"

	"cocos-collector/cmd/cocos-cli/commands"
	"cocos-collector/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "cocos-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
