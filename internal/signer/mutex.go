/*
 * Copyright 2024 Galactica Network
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package signer

import "sync"

type (
	// KeyMutex holds a mutex for each signing key.
	// Transactions signed with the same key must be serialized to keep nonces consistent,
	// transactions signed with different keys never contend.
	KeyMutex struct {
		mutexes map[string]*sync.Mutex
		mu      sync.RWMutex
	}
)

func NewKeyMutex() *KeyMutex {
	return &KeyMutex{
		mutexes: make(map[string]*sync.Mutex),
	}
}

// ForKey returns the mutex of the given key. The same mutex is returned for the whole process lifetime.
func (m *KeyMutex) ForKey(key string) *sync.Mutex {
	m.mu.RLock()
	mutex, ok := m.mutexes[key]
	m.mu.RUnlock()

	if ok {
		return mutex
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// check if another goroutine has created the mutex
	mutex, ok = m.mutexes[key]
	if ok {
		return mutex
	}

	mutex = &sync.Mutex{}
	m.mutexes[key] = mutex
	return mutex
}
