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
	"github.com/jacobsa/fuse/fuseops"
	"golang.org/x/net/context"
)

// Link is a symbolic link. The tree never creates one on its own; it
// exists so that Tag() has a distinct variant to type-switch on wherever
// a client-visible operation must report -EINVAL for "this isn't a
// directory, file, or socket."
type Link struct {
	base

	target string
}

func newLink(target string) *Link {
	return &Link{base: base{kind: tagLink, mode: 0o777}, target: target}
}

func (l *Link) Readlink() string {
	return l.target
}

func (l *Link) GetAttr(ctx context.Context) (fuseops.InodeAttributes, error) {
	return fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  l.mode,
		Size:  uint64(len(l.target)),
	}, nil
}
