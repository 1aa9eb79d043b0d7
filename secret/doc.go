// Package secret resolves secret references in configuration values.
//
// A value of the form "secretref:<provider>:<ref>" is replaced by what the
// named Provider returns for ref. References may also appear inline, as in
// "Bearer secretref:env:OPENAI_API_KEY". Values are expanded strictly
// against the environment first (see ExpandEnvStrict).
//
// Two providers are built in:
//   - "env" reads an environment variable: secretref:env:OPENAI_API_KEY
//   - "file" reads a mounted secret file: secretref:file:/run/secrets/openai
package secret
