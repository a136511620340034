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

package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStripsEchoPromptAndPriority(t *testing.T) {
	ev := Parse(`> <3>P2P-GO-NEG-REQUEST aa:bb:cc:dd:ee:ff dev_passwd_id=4 go_intent=6`)
	require.Equal(t, TagP2PGoNegRequest, ev.Tag)
	require.Equal(t, "aa:bb:cc:dd:ee:ff", ev.MAC)
	require.Equal(t, "4", ev.DevPasswdID)
	require.Equal(t, "6", ev.GoIntent)
}

func TestParseShowPinLine(t *testing.T) {
	line := `<3>P2P-PROV-DISC-SHOW-PIN ee:54:44:24:70:df 93430999 p2p_dev_addr=ee:54:44:24:70:df pri_dev_type=10-0050F204-5 name='testphone' config_methods=0x188 dev_capab=0x25 group_capab=0x0`
	ev := Parse(line)
	require.Equal(t, TagP2PProvDiscShowPin, ev.Tag)
	require.Equal(t, "ee:54:44:24:70:df", ev.PeerAddr)
	require.Equal(t, "testphone", ev.Name)
	require.Equal(t, "10-0050F204-5", ev.PriDevType)
	require.Equal(t, "Notebook", DeviceTypeLabel(ev.PriDevType))
}

func TestParseGroupStarted(t *testing.T) {
	ev := Parse(`P2P-GROUP-STARTED p2p-wlan0-0 GO ssid="DIRECT-xy" freq=2412 passphrase="12345678" go_dev_addr=02:00:00:00:00:00`)
	require.Equal(t, TagP2PGroupStarted, ev.Tag)
	require.Equal(t, "DIRECT-xy", ev.SSID)
}

func TestParsePersistentAttribute(t *testing.T) {
	ev := Parse(`P2P-GROUP-STARTED p2p-wlan0-0 GO ssid="DIRECT-xy" persistent=4`)
	require.NotNil(t, ev.Persistent)
	require.Equal(t, 4, *ev.Persistent)
}

func TestParseMissingAttributesAreZeroValue(t *testing.T) {
	ev := Parse("OK")
	require.Equal(t, TagOK, ev.Tag)
	require.Empty(t, ev.MAC)
	require.Nil(t, ev.Persistent)
}

func TestPeerMACPrefersMACThenPeerAddrThenSA(t *testing.T) {
	ev := Event{SA: "11:11:11:11:11:11"}
	require.Equal(t, "11:11:11:11:11:11", ev.PeerMAC())
	ev.PeerAddr = "22:22:22:22:22:22"
	require.Equal(t, "22:22:22:22:22:22", ev.PeerMAC())
	ev.MAC = "33:33:33:33:33:33"
	require.Equal(t, "33:33:33:33:33:33", ev.PeerMAC())
}

func TestDeviceTypeLabelFallback(t *testing.T) {
	require.Equal(t, "Unknown", DeviceTypeLabel("99-DEADBEEF-1"))
	require.Equal(t, "Computer", DeviceTypeLabel("1-DEADBEEF-9"))
	require.Equal(t, "", DeviceTypeLabel(""))
}

func TestPasswordIDLabelCollapsesUnknownToRandom(t *testing.T) {
	require.Equal(t, "PushButton", PasswordIDLabel("4"))
	require.Equal(t, "NFC-Connection-Handover", PasswordIDLabel("7"))
	require.Equal(t, "Random", PasswordIDLabel("99"))
}

func TestIsProvisioningEvent(t *testing.T) {
	require.True(t, IsProvisioningEvent(TagP2PGoNegRequest))
	require.True(t, IsProvisioningEvent(TagP2PProvDiscShowPin))
	require.False(t, IsProvisioningEvent(TagWPSEnrolleeSeen))
	require.False(t, IsProvisioningEvent(TagOK))
}
