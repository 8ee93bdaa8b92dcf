package config

import (
	"bytes"
	"os"
	"text/template"
)

// ExpandEnv expands environment variables in YAML content using Go templates.
// Uses {{.VAR_NAME}} syntax so literal $ survives untouched; the config
// routinely carries Mongo operators ($match, $regex) and connection strings
// with $ in passwords.
//
// Examples:
//   - {{.MONGO_URI}} → value of MONGO_URI environment variable
//   - {{.API_CLIENT_ID}}:{{.API_CLIENT_SECRET}} → both variables expanded
//   - filter: '{"leadStatus": {"$ne": null}}' → preserved literally
//
// Missing variables expand to empty string (unless template is malformed).
// Validation catches required fields that end up empty.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		// Malformed template syntax: hand the original bytes to the YAML
		// parser so the user sees a YAML error, not a template one.
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		// Split only on first = to handle values with = in them
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}

	return buf.Bytes()
}
