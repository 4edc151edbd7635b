// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

/*
Package node hosts a transaction pool process: it owns the data directory, the
databases opened inside it and the services registered against it.

# Node Lifecycle

The Node object has a lifecycle consisting of three basic states, INITIALIZING, RUNNING
and CLOSED.

	●───────┐
	     New()
	        │
	        ▼
	  INITIALIZING ────Start()─┐
	        │                  │
	        │                  ▼
	    Close()             RUNNING
	        │                  │
	        ▼                  │
	     CLOSED ◀──────Close()─┘

Creating a Node allocates basic resources such as the data directory and returns the
node in its INITIALIZING state. Lifecycle objects and databases can be registered in
this state.

Calling Start starts every registered Lifecycle in registration order. A failed start
stops the ones already running and closes the node.

Calling Close stops the running lifecycles in reverse order, closes every database
opened through the node and releases the data directory lock.

节点拥有数据目录锁，数据库在关闭时被统一释放。

# Data Directory

The instance directory is DataDir/Name. It holds a LOCK file that prevents two pool
processes from sharing the same directory, and one sub-directory per database opened
with OpenDatabase.

	$datadir/txpool/LOCK         - instance lock
	$datadir/txpool/pool/        - pool transactions database
*/
package node
