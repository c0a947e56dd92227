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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_Code(t *testing.T) {
	require.Equal(t, StatusCode(0), StatusPending.Code())
	require.Equal(t, StatusCode(1), StatusConfirmed.Code())
	require.Equal(t, StatusCode(2), StatusCancelled.Code())
	require.Equal(t, StatusCode(3), StatusRefunded.Code())
}

func TestStatus_CodeUnknownPanics(t *testing.T) {
	require.Panics(t, func() { Status("shipped").Code() })
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("confirmed")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, status)

	_, err = ParseStatus("paid")
	require.ErrorIs(t, err, ErrInvalidStatus)

	_, err = ParseStatus("")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestParsePlatform(t *testing.T) {
	platform, err := ParsePlatform("woo-commerce")
	require.NoError(t, err)
	require.Equal(t, PlatformWooCommerce, platform)

	_, err = ParsePlatform("magento")
	require.Error(t, err)
}
