// Package config loads the WaxAgentKit runtime configuration from a JSON
// file, overlays the environment variables used by the command line tools
// (RPC_URL, PRIVATE_KEY, ACCOUNT_NAME, CHAIN_ID, OPENAI_API_KEY) and fills in
// defaults for everything left blank.
package config
