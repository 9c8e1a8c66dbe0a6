// Switchboard - Real-Time Messaging and Notification Fan-Out
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/switchboard

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/switchboard/internal/cache"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Route groups named in the policy.
const (
	ObjectRooms               = "rooms"
	ObjectNotifications       = "notifications"
	ObjectNotificationActions = "notification_actions"
	ObjectEvents              = "events"
	ObjectBroadcasts          = "broadcasts"
	ObjectTokens              = "tokens"
)

// Actions named in the policy.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// PolicyPath is a CSV policy file. Empty uses the embedded policy.
	PolicyPath string

	// ReloadInterval is how often a PolicyPath file is reloaded.
	// Default: 30s
	ReloadInterval time.Duration

	// CacheTTL is how long a decision is remembered. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultEnforcerConfig returns the embedded policy with a short decision cache.
func DefaultEnforcerConfig() *EnforcerConfig {
	return &EnforcerConfig{
		ReloadInterval: 30 * time.Second,
		CacheTTL:       30 * time.Second,
	}
}

// Enforcer wraps a synced Casbin enforcer with a decision cache.
type Enforcer struct {
	config   *EnforcerConfig
	enforcer *casbin.SyncedEnforcer
	cache    *cache.Cache[string, bool]
}

// NewEnforcer loads the embedded model and the configured policy.
func NewEnforcer(config *EnforcerConfig) (*Enforcer, error) {
	if config == nil {
		config = DefaultEnforcerConfig()
	}
	if config.ReloadInterval <= 0 {
		config.ReloadInterval = 30 * time.Second
	}

	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" {
		if _, statErr := os.Stat(config.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("policy file: %w", statErr)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if config.PolicyPath != "" {
		enforcer.StartAutoLoadPolicy(config.ReloadInterval)
	}

	e := &Enforcer{config: config, enforcer: enforcer}
	if config.CacheTTL > 0 {
		e.cache = cache.New[string, bool](config.CacheTTL, config.CacheTTL)
	}
	return e, nil
}

// loadPolicy adds the p and g lines of a CSV policy.
func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch ptype, rule := parts[0], parts[1:]; {
		case ptype == "p" && len(rule) == 3:
			if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", rule, err)
			}
		case ptype == "g" && len(rule) == 2:
			if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", rule, err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Enforce reports whether role may perform action on object.
func (e *Enforcer) Enforce(role, object, action string) (bool, error) {
	key := role + "|" + object + "|" + action
	if e.cache != nil {
		if allowed, ok := e.cache.Get(key); ok {
			return allowed, nil
		}
	}

	allowed, err := e.enforcer.Enforce(role, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}

	if e.cache != nil {
		e.cache.Set(key, allowed)
	}
	return allowed, nil
}

// Policy returns every p rule.
func (e *Enforcer) Policy() [][]string {
	//nolint:errcheck // only fails on a nil model
	policies, _ := e.enforcer.GetPolicy()
	return policies
}

// Close stops policy reloading and the decision cache.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
	if e.cache != nil {
		e.cache.Close()
	}
}
