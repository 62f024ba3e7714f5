/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import "github.com/zalando/go-keyring"

const (
	keyringService     = "storyloom"
	keyringSupabaseKey = "supabase_service_key"
)

// secretStore abstracts the OS keychain so tests can substitute an in-memory store.
type secretStore interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

type osKeyring struct{}

func (osKeyring) Get(service, user string) (string, error) { return keyring.Get(service, user) }
func (osKeyring) Set(service, user, secret string) error   { return keyring.Set(service, user, secret) }
func (osKeyring) Delete(service, user string) error        { return keyring.Delete(service, user) }

var tokenStore secretStore = osKeyring{}

// ForgetSupabaseKey removes the stored Supabase key. A missing entry is not an error.
func ForgetSupabaseKey() error {
	if err := tokenStore.Delete(keyringService, keyringSupabaseKey); err != nil && err != keyring.ErrNotFound {
		return err
	}
	return nil
}
