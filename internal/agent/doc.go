// Package agent drives a chat model through the WAX toolkit. Each turn sends
// the conversation and the tool definitions to the model, runs the tool calls
// it asks for and feeds the JSON envelopes back until the model replies with
// plain text. Autonomous mode repeats a fixed prompt on an interval.
package agent
