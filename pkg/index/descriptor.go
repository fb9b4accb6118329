// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package index

import (
	"bytes"
	"encoding/json"
)

// Column is one described column of a table.
type Column struct {
	Name        string
	Description string
}

// TableDescriptor describes a data table by its column descriptions.
type TableDescriptor struct {
	Name    string
	Columns []Column
}

// Text is the string embedded for this table: the table name followed by
// its column descriptions, as a JSON object in column order.
func (d TableDescriptor) Text() string {
	if len(d.Columns) == 0 {
		return ""
	}
	var buf bytes.Buffer
	buf.WriteString(`{"table_name":`)
	writeJSONString(&buf, d.Name)
	for _, c := range d.Columns {
		buf.WriteByte(',')
		writeJSONString(&buf, c.Name)
		buf.WriteByte(':')
		writeJSONString(&buf, c.Description)
	}
	buf.WriteByte('}')
	return buf.String()
}

// MarshalJSON encodes the columns as an object keeping column order.
func (d TableDescriptor) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range d.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(&buf, c.Name)
		buf.WriteByte(':')
		writeJSONString(&buf, c.Description)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode serializes tables as {"table": {"column": "description"}} in the
// given order.
func Encode(tables []TableDescriptor) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, t := range tables {
		if i > 0 {
			buf.WriteString(", ")
		}
		writeJSONString(&buf, t.Name)
		buf.WriteString(": ")
		b, _ := t.MarshalJSON()
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.String()
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}
