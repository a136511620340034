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

import "strings"

// deviceTypeLabels maps a WPS primary device type triplet
// (category-OUI-subcategory, e.g. "10-0050F204-5") to a fixed friendly
// label. Only the Wi-Fi Alliance OUI (0050F204) subcategories are named;
// anything else collapses to the bare category label, or to "Unknown"
// when the category is not recognised either.
var deviceTypeLabels = map[string]string{
	"1-0050F204-1":  "Computer",
	"1-0050F204-2":  "Server",
	"2-0050F204-1":  "Access Point",
	"3-0050F204-1":  "Printer",
	"3-0050F204-2":  "Scanner",
	"4-0050F204-1":  "Camera",
	"5-0050F204-1":  "NAS",
	"6-0050F204-1":  "AV Device",
	"7-0050F204-1":  "Phone",
	"7-0050F204-2":  "Smartphone",
	"8-0050F204-1":  "Audio Device",
	"9-0050F204-1":  "Docking Station",
	"10-0050F204-1": "Desktop",
	"10-0050F204-2": "Laptop",
	"10-0050F204-3": "Netbook",
	"10-0050F204-4": "Tablet",
	"10-0050F204-5": "Notebook",
	"11-0050F204-1": "Game Device",
}

var categoryLabels = map[string]string{
	"1": "Computer", "2": "Access Point", "3": "Printer", "4": "Camera",
	"5": "NAS", "6": "AV Device", "7": "Phone", "8": "Audio Device",
	"9": "Docking Station", "10": "Computer", "11": "Game Device",
}

// DeviceTypeLabel maps a WPS primary device type code to a fixed label.
// An unrecognised subcategory falls back to the bare category label; an
// unrecognised category falls back to "Unknown".
func DeviceTypeLabel(code string) string {
	if code == "" {
		return ""
	}
	if label, ok := deviceTypeLabels[code]; ok {
		return label
	}
	cat := strings.SplitN(code, "-", 2)[0]
	if label, ok := categoryLabels[cat]; ok {
		return label
	}
	return "Unknown"
}

// passwordIDLabels implements the WPS dev_passwd_id enumeration. Values
// outside the enumeration collapse to "Random" per spec.
var passwordIDLabels = map[string]string{
	"0": "Default",
	"1": "User-Specified",
	"2": "Machine-Specified",
	"3": "Rekey",
	"4": "PushButton",
	"5": "Registrar-Specified",
	"7": "NFC-Connection-Handover",
}

// PasswordIDLabel maps a raw dev_passwd_id value to its enumeration label.
func PasswordIDLabel(raw string) string {
	if label, ok := passwordIDLabels[raw]; ok {
		return label
	}
	return "Random"
}
