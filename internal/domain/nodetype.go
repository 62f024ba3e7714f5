/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"strings"
)

// NodeType is the closed set of story element kinds.
type NodeType string

const (
	Scene        NodeType = "scene"
	Character    NodeType = "character"
	Location     NodeType = "location"
	Lore         NodeType = "lore"
	Event        NodeType = "event"
	Organization NodeType = "organization"
	Religion     NodeType = "religion"
	Politics     NodeType = "politics"
	Artifact     NodeType = "artifact"
)

// NodeTypes lists every canonical type in display order.
var NodeTypes = []NodeType{Scene, Character, Location, Lore, Event, Organization, Religion, Politics, Artifact}

// legacy spellings found in stored data
var legacyTypes = map[string]NodeType{
	"plotpoint":     Event,
	"plot":          Event,
	"locations":     Location,
	"characters":    Character,
	"organizations": Organization,
	"artifacts":     Artifact,
}

func (t NodeType) Valid() bool {
	switch t {
	case Scene, Character, Location, Lore, Event, Organization, Religion, Politics, Artifact:
		return true
	}
	return false
}

func (t NodeType) String() string { return string(t) }

// CanonicalNodeType maps any stored spelling to its canonical type. Matching is
// case-insensitive, so "plotPoint" and "plotpoint" both become Event. Unknown
// values yield (Scene, false).
func CanonicalNodeType(raw string) (NodeType, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if t := NodeType(s); t.Valid() {
		return t, true
	}
	if t, ok := legacyTypes[s]; ok {
		return t, true
	}
	return Scene, false
}

// CatalogTypeFor maps a node type to the catalog type it syncs with.
func CatalogTypeFor(t NodeType) NodeType { return t }

// UnmarshalJSON canonicalizes on read; unknown values fall back to scene.
func (t *NodeType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t, _ = CanonicalNodeType(s)
	return nil
}
