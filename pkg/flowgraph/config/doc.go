/*
Package config holds the typed settings of a support desk deployment.

# Overview

Configuration comes from three layers, later layers winning:

  1. Defaults from Default.
  2. An optional YAML or JSON file.
  3. FLOWDESK_* environment variables.

	cfg, err := config.Load("flowdesk.yaml")
	if err != nil {
	    return err
	}
	if err := cfg.Validate(); err != nil {
	    return err
	}

# Environment Variables

Each field maps to FLOWDESK_<SECTION>_<FIELD> in upper snake case:

	FLOWDESK_ENGINE_MAX_STEPS=50
	FLOWDESK_ENGINE_TOOL_LOOP_BUDGET=6
	FLOWDESK_LLM_API_KEY=sk-...
	FLOWDESK_STORE_BACKEND=sqlite
	FLOWDESK_STORE_PATH=/var/lib/flowdesk/checkpoints.db
	FLOWDESK_RETRIEVAL_BACKEND=weaviate
	FLOWDESK_LOG_LEVEL=debug

Durations accept time.ParseDuration syntax in both files and the
environment ("90s", "2m").

# File Format

	engine:
	  max_steps: 100
	  timeout: 2m
	llm:
	  model: gpt-4o-mini
	store:
	  backend: badger
	  path: ./data/checkpoints
*/
package config
