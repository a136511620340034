/*
Copyright (c) hostp2pd authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	r := New()
	r.Put("aa:bb:cc:dd:ee:ff", "phone1", "Phone")
	e, ok := r.Get("aa:bb:cc:dd:ee:ff")
	require.True(t, ok)
	require.Equal(t, Entry{Name: "phone1", DeviceType: "Phone"}, e)
}

func TestPutIsIdempotent(t *testing.T) {
	r := New()
	r.Put("aa:bb:cc:dd:ee:ff", "phone1", "Phone")
	r.Put("aa:bb:cc:dd:ee:ff", "phone1", "Phone")
	r.Put("aa:bb:cc:dd:ee:ff", "phone1", "Phone")
	require.Equal(t, 1, r.Len())
	e, _ := r.Get("aa:bb:cc:dd:ee:ff")
	require.Equal(t, Entry{Name: "phone1", DeviceType: "Phone"}, e)
}

func TestPutIgnoresEmptyMAC(t *testing.T) {
	r := New()
	r.Put("", "x", "y")
	require.Equal(t, 0, r.Len())
}

func TestReset(t *testing.T) {
	r := New()
	r.Put("aa:bb:cc:dd:ee:ff", "phone1", "Phone")
	r.Reset()
	require.Equal(t, 0, r.Len())
	_, ok := r.Get("aa:bb:cc:dd:ee:ff")
	require.False(t, ok)
}

func TestEncodeDecodeRegisterRoundTrip(t *testing.T) {
	line := EncodeRegister("aa:bb:cc:dd:ee:ff", "phone1", "Phone")
	require.Equal(t, "HOSTP2PD_ADD_REGISTER\taa:bb:cc:dd:ee:ff\tphone1\tPhone", line)
	mac, name, dt, ok := DecodeRegister(line)
	require.True(t, ok)
	require.Equal(t, "aa:bb:cc:dd:ee:ff", mac)
	require.Equal(t, "phone1", name)
	require.Equal(t, "Phone", dt)
}

func TestDecodeRegisterRejectsMalformed(t *testing.T) {
	_, _, _, ok := DecodeRegister("P2P-DEVICE-FOUND aa:bb:cc:dd:ee:ff")
	require.False(t, ok)
	_, _, _, ok = DecodeRegister("HOSTP2PD_ADD_REGISTER\taa:bb")
	require.False(t, ok)
}
