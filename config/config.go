// Package config loads a project manifest — the pipelines, credentials,
// templates and recipients for one or more projects — from YAML, and
// populates the in-memory stores the runner and plugins read from.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/notifico/dispatcher/credential"
	"github.com/notifico/dispatcher/pipeline"
	"github.com/notifico/dispatcher/recipient"
	"github.com/notifico/dispatcher/store"
)

// Manifest is the on-disk shape of a project configuration file.
type Manifest struct {
	Projects []Project `yaml:"projects"`
}

// Project groups everything needed to run one tenant's pipelines.
type Project struct {
	ID          string             `yaml:"id"`
	Pipelines   []PipelineConfig   `yaml:"pipelines"`
	Credentials []CredentialConfig `yaml:"credentials"`
	Templates   []TemplateConfig   `yaml:"templates"`
	Recipients  []RecipientConfig  `yaml:"recipients"`
}

// PipelineConfig is the YAML shape of a pipeline.Pipeline.
type PipelineConfig struct {
	ID        string       `yaml:"id"`
	EventName string       `yaml:"event_name"`
	Channel   string       `yaml:"channel"`
	Steps     []StepConfig `yaml:"steps"`
}

// StepConfig is the YAML shape of a pipeline.SerializedStep: a flat mapping
// whose "step" key is the discriminator and whose remaining keys are the
// plugin-defined payload, mirroring the JSON wire shape.
type StepConfig map[string]any

// CredentialConfig is the YAML shape of a credential.Credential.
type CredentialConfig struct {
	ID   string         `yaml:"id"`
	Type string         `yaml:"type"`
	Data map[string]any `yaml:"data"`
}

// TemplateConfig is the YAML shape of a named template's parts, scoped to
// one channel.
type TemplateConfig struct {
	ID      string            `yaml:"id"`
	Channel string            `yaml:"channel"`
	Parts   map[string]string `yaml:"parts"`
}

// RecipientConfig is the YAML shape of a recipient.Recipient.
type RecipientConfig struct {
	ID       string             `yaml:"id"`
	Contacts []recipient.Contact `yaml:"contacts"`
}

// Stores bundles the in-memory collaborators a loaded manifest populates.
type Stores struct {
	Pipelines *store.Memory
	Templates *store.TemplateStore
}

// LoadFile reads and parses a manifest file from disk and populates a fresh
// set of in-memory stores from it.
func LoadFile(path string) (*Stores, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading manifest: %w", err)
	}
	return Load(data)
}

// Load parses manifest YAML and populates a fresh set of in-memory stores.
func Load(data []byte) (*Stores, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("config: parsing manifest: %w", err)
	}

	mem := store.NewMemory()
	templates := store.NewTemplateStore()

	for _, proj := range manifest.Projects {
		for _, pc := range proj.Pipelines {
			steps := make([]pipeline.SerializedStep, 0, len(pc.Steps))
			for i, sc := range pc.Steps {
				step, err := decodeStep(sc)
				if err != nil {
					return nil, fmt.Errorf("config: pipeline %q step %d: %w", pc.ID, i, err)
				}
				steps = append(steps, step)
			}
			mem.AddPipeline(pipeline.Pipeline{
				ID:        pc.ID,
				ProjectID: proj.ID,
				EventName: pc.EventName,
				Channel:   pc.Channel,
				Steps:     steps,
			})
		}

		for _, cc := range proj.Credentials {
			raw, err := json.Marshal(cc.Data)
			if err != nil {
				return nil, fmt.Errorf("config: encoding credential %q: %w", cc.ID, err)
			}
			mem.AddCredential(credential.Credential{ID: cc.ID, ProjectID: proj.ID, Type: cc.Type, Data: raw})
		}

		for _, tc := range proj.Templates {
			templates.AddTemplate(proj.ID, tc.Channel, tc.ID, tc.Parts)
		}

		for _, rc := range proj.Recipients {
			mem.AddRecipient(proj.ID, recipient.Recipient{ID: rc.ID, Contacts: rc.Contacts})
		}
	}

	return &Stores{Pipelines: mem, Templates: templates}, nil
}

// decodeStep converts one YAML step mapping into a SerializedStep: "step"
// becomes the discriminator, everything else is re-encoded as the opaque
// params payload the owning plugin decodes later.
func decodeStep(sc StepConfig) (pipeline.SerializedStep, error) {
	rawType, ok := sc["step"]
	if !ok {
		return pipeline.SerializedStep{}, fmt.Errorf(`missing "step" discriminator`)
	}
	stepType, ok := rawType.(string)
	if !ok || stepType == "" {
		return pipeline.SerializedStep{}, fmt.Errorf(`"step" must be a non-empty string`)
	}

	payload := make(map[string]any, len(sc)-1)
	for k, v := range sc {
		if k != "step" {
			payload[k] = v
		}
	}
	params, err := json.Marshal(payload)
	if err != nil {
		return pipeline.SerializedStep{}, fmt.Errorf("encoding params for step %q: %w", stepType, err)
	}
	return pipeline.SerializedStep{FullyQualifiedStepType: stepType, Params: params}, nil
}
