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

package core

import (
	"strconv"
	"strings"
)

// decodeStatistics parses HOSTP2PD_STATISTICS\t<EVENT_NAME> records
// forwarded by the Enroller.
func decodeStatistics(line string) (tag string, ok bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 2 || fields[0] != "HOSTP2PD_STATISTICS" {
		return "", false
	}
	return fields[1], true
}

// decodeActiveSessions parses HOSTP2PD_ACTIVE_SESSIONS\t<N> records
// forwarded by the Enroller.
func decodeActiveSessions(line string) (n int, ok bool) {
	fields := strings.Split(line, "\t")
	if len(fields) != 2 || fields[0] != "HOSTP2PD_ACTIVE_SESSIONS" {
		return 0, false
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
