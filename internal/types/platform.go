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

package types

import "fmt"

const (
	PlatformShopify     Platform = "shopify"
	PlatformWooCommerce Platform = "woo-commerce"
	PlatformCustom      Platform = "custom"
	PlatformInternal    Platform = "internal"
)

// Platform is the merchant platform that reports purchases of a product.
type Platform string

// ParsePlatform converts a raw platform name into Platform.
func ParsePlatform(s string) (Platform, error) {
	switch platform := Platform(s); platform {
	case PlatformShopify, PlatformWooCommerce, PlatformCustom, PlatformInternal:
		return platform, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

func (p Platform) String() string {
	return string(p)
}
