// Package support is a customer-support desk built on flowgraph.
//
// Each user turn runs one pass of the support workflow:
//
//	triage ──┬── manage_subscription ─┐
//	         ├── manage_reservations ─┤
//	         ├── manage_account ──────┼── END
//	         ├── consult_kb ──────────┤
//	         └── escalate ────────────┘
//
// The Supervisor classifies the conversation into one Route. Account,
// subscription, and reservation tickets go to a Specialist, which loops
// between the model and its tools until the model answers in plain text.
// General questions go to the KnowledgeAgent, which retrieves help
// articles, answers from them, grades the answer, and rewrites the query
// when the grade fails. Escalated tickets get a fixed hand-off notice.
//
// Engine persists each Conversation by thread ID through a
// checkpoint.Store and returns only the messages a turn appended.
//
//	workflow, err := support.Build(support.Deps{
//	    Client:    client,
//	    Tools:     registry,
//	    Retriever: retriever,
//	}, support.Settings{})
//	if err != nil {
//	    return err
//	}
//	engine := support.NewEngine(workflow, checkpoint.NewMemoryStore())
//	msgs, err := engine.Run(flowgraph.NewContext(ctx), "t1", "Cancel my subscription")
package support
