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

package storage

import (
	"fmt"
	"strings"
	"time"
)

// sqlite returns aggregated timestamps as text in the format they were written with.
var scanTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// scanTime scans aggregated timestamps of both postgres and sqlite.
type scanTime time.Time

func (t *scanTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*t = scanTime{}
		return nil
	case time.Time:
		*t = scanTime(v)
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("scan time: unsupported type %T", value)
	}
}

func (t *scanTime) parse(value string) error {
	// drop the monotonic clock reading of time.Time.String
	if i := strings.Index(value, " m="); i >= 0 {
		value = value[:i]
	}

	for _, layout := range scanTimeLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			*t = scanTime(parsed)
			return nil
		}
	}

	return fmt.Errorf("scan time: unknown format %q", value)
}
