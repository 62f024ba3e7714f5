/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("nodetype", func(fl validator.FieldLevel) bool {
			return NodeType(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Validate checks the struct tags of a NewNode, NewEdge, NewCatalogElement or patch.
// Field errors are flattened into one message such as "invalid input: Title max=200".
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		p := fe.Field() + " " + fe.Tag()
		if fe.Param() != "" {
			p += "=" + fe.Param()
		}
		parts = append(parts, p)
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(parts, ", "))
}

// ErrInvalid marks input rejected by Validate.
var ErrInvalid = errors.New("invalid input")
