// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cases turns one registered evaluation function plus a declarative
// case table into an ordered set of independently runnable evaluation units.
//
// # Pipeline
//
//	raw declaration ──► Normalize ──► CaseTable
//	                                     │
//	Spec (registered) ──► Merge(spec, overrides[i]) ──► resolved Spec
//	                                     │
//	Impl (shared) ──► Synthesize(name[i], convention, impl) ──► Callable
//	                                     │
//	                                   Unit[i]
//
// Normalization is fail-fast: a single malformed case rejects the whole
// declaration and no units are produced.
//
// # Override Semantics
//
// Each override field is a Field[T] carrying one of three states:
// Inherit (key absent), Clear (key present with a nil value) or
// Replace(value). Presence of a key, never its value, decides whether the
// base setting is inherited. See Merge for the per-field rules.
//
// # Calling Conventions
//
// Implementations come in four shapes, {context-aware, positional} ×
// {sync, async}. The convention is recorded at registration time and each
// synthesized Callable forwards to the one shared implementation.
//
// # Thread Safety
//
// Normalize, Merge, Synthesize and Expand are pure. Registry is safe for
// concurrent use. Callables may be invoked concurrently.
package cases
