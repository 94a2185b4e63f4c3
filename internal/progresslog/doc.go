// Copyright (c) 2020 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package progresslog provides periodic logging for block and header processing.

Tests are included to ensure proper functionality.

## Feature Overview

- Maintains cumulative totals about blocks between each logging interval
  - Total number of blocks
  - Total number of transactions
  - Total serialized size of the blocks
- Maintains the cumulative number of headers between each logging interval
- Logs all cumulative data every 10 seconds
- Immediately logs any outstanding data when forced, such as when the chain
  becomes current
*/
package progresslog
