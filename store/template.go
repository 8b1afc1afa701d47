package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/notifico/dispatcher/interfaces"
	"github.com/notifico/dispatcher/pipeline"
)

// rawTemplate is a template's source, one pongo2 template string per part
// ("subject", "body", "markup"...).
type rawTemplate map[string]string

// TemplateStore is an in-memory TemplateSource that renders pongo2
// templates. Compiled templates are cached per (projectID, channel,
// selector, part) since pongo2.FromString does its own parsing work every
// call.
type TemplateStore struct {
	mu        sync.RWMutex
	templates map[string]rawTemplate // "projectID/channel/selector" -> parts
	compiled  map[string]*pongo2.Template
}

// NewTemplateStore builds an empty TemplateStore.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{
		templates: make(map[string]rawTemplate),
		compiled:  make(map[string]*pongo2.Template),
	}
}

func templateKey(projectID, channel, selector string) string {
	return projectID + "/" + channel + "/" + selector
}

// AddTemplate registers a template's parts. Intended for config loading and
// tests.
func (s *TemplateStore) AddTemplate(projectID, channel, selector string, parts map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[templateKey(projectID, channel, selector)] = parts
}

// Render implements interfaces.TemplateSource.
func (s *TemplateStore) Render(ctx context.Context, projectID, channel, selector string, vars map[string]any) (pipeline.RenderedTemplate, error) {
	key := templateKey(projectID, channel, selector)

	s.mu.RLock()
	parts, ok := s.templates[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: template %q not found for project %q channel %q: %w", selector, projectID, channel, interfaces.ErrTemplateNotFound)
	}

	out := make(pipeline.RenderedTemplate, len(parts))
	for part, src := range parts {
		tpl, err := s.compile(key+"/"+part, src)
		if err != nil {
			return nil, fmt.Errorf("compiling template %q part %q: %w", selector, part, err)
		}
		rendered, err := tpl.Execute(pongo2.Context(vars))
		if err != nil {
			return nil, fmt.Errorf("rendering template %q part %q: %w", selector, part, err)
		}
		out[part] = rendered
	}
	return out, nil
}

func (s *TemplateStore) compile(cacheKey, src string) (*pongo2.Template, error) {
	s.mu.RLock()
	tpl, ok := s.compiled[cacheKey]
	s.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	tpl, err := pongo2.FromString(src)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.compiled[cacheKey] = tpl
	s.mu.Unlock()
	return tpl, nil
}
