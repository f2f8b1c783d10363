// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package a2a

import (
	"maps"
	"slices"
)

// AgentCapabilities describes the optional protocol features an agent supports.
type AgentCapabilities struct {
	Streaming         bool     `json:"streaming"`
	PushNotifications bool     `json:"pushNotifications"`
	StatefulTasks     bool     `json:"statefulTasks"`
	SupportedMethods  []string `json:"supportedMethods,omitempty"`
}

// AgentSecurityScheme declares an authentication scheme accepted by an agent.
type AgentSecurityScheme struct {
	Type        string   `json:"type"`
	Scheme      string   `json:"scheme,omitempty"`
	Description string   `json:"description,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

// AgentCard is the self-description an agent publishes for discovery.
type AgentCard struct {
	AgentID            string                         `json:"agentId"`
	Name               string                         `json:"name"`
	Description        string                         `json:"description,omitempty"`
	EndpointURL        string                         `json:"endpointUrl"`
	Version            string                         `json:"version"`
	Capabilities       *AgentCapabilities             `json:"capabilities,omitempty"`
	SecuritySchemes    map[string]AgentSecurityScheme `json:"securitySchemes,omitempty"`
	DefaultInputModes  []string                       `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string                       `json:"defaultOutputModes,omitempty"`
	Metadata           map[string]any                 `json:"metadata,omitempty"`
}

// Clone returns a deep enough copy of c to be mutated independently.
func (c *AgentCard) Clone() *AgentCard {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Capabilities != nil {
		caps := *c.Capabilities
		caps.SupportedMethods = slices.Clone(c.Capabilities.SupportedMethods)
		cp.Capabilities = &caps
	}
	cp.SecuritySchemes = maps.Clone(c.SecuritySchemes)
	cp.DefaultInputModes = slices.Clone(c.DefaultInputModes)
	cp.DefaultOutputModes = slices.Clone(c.DefaultOutputModes)
	cp.Metadata = maps.Clone(c.Metadata)
	return &cp
}
