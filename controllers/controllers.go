package controllers

import (
	"log/slog"

	"tacotip-backend/config"
	"tacotip-backend/engine"
	"tacotip-backend/slackbot"
	"tacotip-backend/tips"
)

// Deps carries everything the HTTP handlers drive. Wired once in main.
type Deps struct {
	Cfg          *config.Config
	Engine       *engine.Client
	Bot          *slackbot.Bot
	Orchestrator *tips.Orchestrator
	Reconciler   *tips.Reconciler
	Log          *slog.Logger
}

var deps Deps

func Init(d Deps) { deps = d }
