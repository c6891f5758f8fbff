// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fs

import (
	"io"
	"io/ioutil"
	"log"
	"os"
)

// NewLogger returns a *log.Logger writing to stderr when debug is true and
// discarding output otherwise, the same toggle jacobsa/fuse itself uses
// for its own -fuse.debug messages. Mount (and through it the fd-socket
// workers) takes a logger constructed this way rather than reaching for
// the global one, so a caller embedding the filesystem in a larger program
// can route its output anywhere. internal/bpf does not log.
func NewLogger(prefix string, debug bool) *log.Logger {
	var writer io.Writer = ioutil.Discard
	if debug {
		writer = os.Stderr
	}

	const flags = log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile
	return log.New(writer, prefix, flags)
}
