/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"os"

	"storyloom/internal/crash"
)

func main() {
	scope := &crash.Scope{}
	defer crash.Recover(scope)
	root, a := newRootCmd(scope)
	err := root.Execute()
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_, _ = bad.Fprintf(os.Stderr, "storyloom: %v\n", err)
		os.Exit(1)
	}
}
