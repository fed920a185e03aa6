/*
 *
 * Copyright 2023 CubeFS authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# dit: a persistent index of a directory tree

## Why?

1, give every file and directory below a root a stable identity that survives restarts

2, answer "where is item N" without walking the filesystem

3, make re-scanning cheap, only what is new gets written

## Data Model

* Item, id --> <parent id, name, size, mode>, one record per file or directory

* Link, <parent id, name> --> child id, kept next to the items so children can be listed in name order

* Root, the item with id 2, its parent is itself and its name is the absolute root path

* Counter, a named monotonic value handing out item ids

## Layout

* common/kvstore, the embedded store: bbolt by default, rocksdb optionally

* idgenerator, compare-and-swap allocation of ids

* index, item records, path resolution and the scanner

* cmd/dit, the command line

## Building Blocks

* bbolt
* Rocksdb
* Prometheus
* cobra & viper

*/

package dit
