package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowdesk/pkg/flowgraph/llm"
	"github.com/randalmurphal/flowdesk/pkg/tools"
)

func TestChatSession(t *testing.T) {
	a := testApp(t, nil)
	s := &chatSession{engine: a.engine, newContext: a.context, threadID: "ticket-1"}

	in := strings.NewReader(strings.Join([]string{
		"",
		"Is my subscription active? I'm alice.kingsley@wonderland.com",
		"I want a human",
		"quit",
		"never read",
	}, "\n"))
	var out bytes.Buffer
	require.NoError(t, s.run(context.Background(), in, &out))

	text := out.String()
	assert.Contains(t, text, "Assistant: User ID: a4ab87, Name: Alice Kingsley, Blocked: false")
	assert.Contains(t, text, "Assistant: I have escalated your ticket to a human agent.")
	assert.True(t, strings.HasSuffix(text, "Assistant: Goodbye!\n"))

	conv, ok, err := a.engine.Conversation(a.context(context.Background()), "ticket-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, conv.Messages, 6)
}

func TestChatSession_ExitWords(t *testing.T) {
	for _, word := range []string{"quit", "exit", "q", "  Q  "} {
		t.Run(word, func(t *testing.T) {
			a := testApp(t, nil)
			s := &chatSession{engine: a.engine, newContext: a.context, threadID: "t"}
			var out bytes.Buffer
			require.NoError(t, s.run(context.Background(), strings.NewReader(word+"\n"), &out))
			assert.Equal(t, "User: Assistant: Goodbye!\n", out.String())
		})
	}
}

func TestChatSession_ErrorKeepsGoing(t *testing.T) {
	a := testApp(t, llm.NewMockClient("").WithError(llm.ErrRateLimited))
	s := &chatSession{engine: a.engine, newContext: a.context, threadID: "t"}

	var out bytes.Buffer
	require.NoError(t, s.run(context.Background(), strings.NewReader("hello\nq\n"), &out))
	assert.Contains(t, out.String(), "Assistant: Sorry, I couldn't process that")
	assert.Contains(t, out.String(), "Assistant: Goodbye!")
}

func TestChatSession_EOF(t *testing.T) {
	a := testApp(t, nil)
	s := &chatSession{engine: a.engine, newContext: a.context, threadID: "t"}
	var out bytes.Buffer
	assert.NoError(t, s.run(context.Background(), strings.NewReader(""), &out))
}

func TestRootCmd_Seed(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "cultpass.db")
	cfgPath := filepath.Join(dir, "flowdesk.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("llm:\n  provider: mock\ntools:\n  database: "+db+"\n"), 0o600))

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"seed", "--config", cfgPath, "--env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Seeded "+db+": 3 users, 2 subscriptions, 4 experiences, 1 reservations")

	cp, err := tools.OpenCultPass(db)
	require.NoError(t, err)
	defer cp.Close()
	got, err := cp.LookupCustomer(context.Background(), "alice.kingsley@wonderland.com")
	require.NoError(t, err)
	assert.Equal(t, "User ID: a4ab87, Name: Alice Kingsley, Blocked: false", got)
}

func TestRootCmd_EnvFileOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-env.db")
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("FLOWDESK_LLM_PROVIDER=mock\nFLOWDESK_TOOLS_DATABASE="+db+"\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("FLOWDESK_LLM_PROVIDER")
		os.Unsetenv("FLOWDESK_TOOLS_DATABASE")
	})

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"seed", "--env-file", envPath})
	require.NoError(t, cmd.Execute())
	assert.FileExists(t, db)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("engine:\n  max_steps: 0\nllm:\n  provider: mock\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"seed", "--config", cfgPath, "--env-file", ""})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.max_steps")
}
