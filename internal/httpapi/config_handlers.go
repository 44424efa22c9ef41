package httpapi

import (
	"io"
	"net/http"

	"gopkg.in/yaml.v3"

	"locascan-engine/internal/config"
)

// configBodyLimit bounds PUT /config payloads; a real config is a few KB.
const configBodyLimit = 1 << 20

type ConfigHandler struct {
	// Path is the user config file under the data dir.
	Path string
}

// Get returns the stored config, normalized the same way startup sees it.
func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := config.Load(h.Path)
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "config_read", err.Error())
		return
	}
	normalized, _ := config.NormalizeAndValidate(cfg)
	WriteJSON(w, http.StatusOK, normalized)
}

// Put replaces the user config file. The body is YAML, same format as the
// file itself. Sources and scheduler jobs are wired at startup, so a saved
// config takes effect on the next restart.
func (h ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, configBodyLimit))
	if err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	var incoming config.Config
	if err := yaml.Unmarshal(body, &incoming); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_yaml", err.Error())
		return
	}

	normalized, res := config.NormalizeAndValidate(incoming)
	if !res.OK() {
		WriteError(w, r, http.StatusBadRequest, "invalid_config", "config validation failed", res.Errors...)
		return
	}

	if err := config.SaveAtomic(h.Path, normalized); err != nil {
		WriteError(w, r, http.StatusInternalServerError, "config_write", err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "saved",
		"path":     h.Path,
		"warnings": res.Warnings,
		"note":     "restart the engine to apply the new config",
	})
}
