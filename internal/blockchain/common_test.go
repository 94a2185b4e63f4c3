// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2023 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"context"
	"errors"
	mrand "math/rand"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/xecnode/xecd/chaincfg"
	"github.com/xecnode/xecd/internal/blockstore"
)

// opTrueScript is a public key script that anyone can spend with an empty
// signature script.
var opTrueScript = []byte{txscript.OP_TRUE}

// testChainDBs houses the databases that back a test chain instance.
type testChainDBs struct {
	utxoDB  *leveldb.DB
	indexDB *leveldb.DB
	store   *blockstore.Store
}

// openTestChainDBs opens (or creates) the databases of a test chain in the
// provided data directory.  A block file size of zero uses the default.
func openTestChainDBs(t testing.TB, dataDir string, blockFileSize uint64) *testChainDBs {
	t.Helper()

	utxoDB, err := openLevelDB(filepath.Join(dataDir, utxoDbName))
	if err != nil {
		t.Fatalf("unable to open utxo database: %v", err)
	}
	indexDB, err := openLevelDB(filepath.Join(dataDir, blockIndexDbName))
	if err != nil {
		utxoDB.Close()
		t.Fatalf("unable to open block index database: %v", err)
	}
	store, err := blockstore.Open(filepath.Join(dataDir, "blocks"), blockFileSize)
	if err != nil {
		utxoDB.Close()
		indexDB.Close()
		t.Fatalf("unable to open block store: %v", err)
	}
	return &testChainDBs{utxoDB: utxoDB, indexDB: indexDB, store: store}
}

// close closes all of the databases.
func (dbs *testChainDBs) close() {
	dbs.store.Close()
	dbs.indexDB.Close()
	dbs.utxoDB.Close()
}

// newTestChainWithDBs returns a chain instance backed by the provided
// databases.
func newTestChainWithDBs(params *chaincfg.Params, dbs *testChainDBs, ntfns NotificationCallback) (*BlockChain, error) {
	return New(context.Background(), &Config{
		DB:            dbs.indexDB,
		Store:         dbs.store,
		UtxoBackend:   NewLevelDbUtxoBackend(dbs.utxoDB),
		ChainParams:   params,
		TimeSource:    NewMedianTime(),
		Notifications: ntfns,
		SigCache:      nil,
		ScriptCache:   NewScriptCache(1000),
		ScriptWorkers: 2,
	})
}

// chainSetup is used to create a new chain instance backed by databases in a
// temporary directory that is removed once the test finishes.
func chainSetup(t testing.TB, params *chaincfg.Params) (*BlockChain, error) {
	t.Helper()

	dbs := openTestChainDBs(t, t.TempDir(), 0)
	t.Cleanup(dbs.close)
	return newTestChainWithDBs(params, dbs, nil)
}

// newFakeChain returns a chain that is usable for synthetic tests.  It is
// important to note that this chain has no database associated with it, so
// it is not usable with all functions and the tests must take care when making
// use of it.
func newFakeChain(params *chaincfg.Params) *BlockChain {
	// Create a genesis block node and block index populated with it for use
	// when creating the fake chain below.
	node := newBlockNode(&params.GenesisBlock.Header, nil)
	node.status = statusHaveData | statusHaveUndo | statusChecked
	node.validity = validityScripts
	node.numTxns = 1
	node.isFullyLinked = true
	index := newBlockIndex(nil)
	index.bestHeader = node
	index.AddNode(node)
	index.addBestChainCandidate(node)

	b := &BlockChain{
		chainParams:   params,
		timeSource:    NewMedianTime(),
		index:         index,
		bestChain:     newChainView(node),
		pruneLocks:    make(map[string]int64),
		recentBlocks:  lru.NewMap[chainhash.Hash, *dcrutil.Block](recentBlockCacheSize),
		checkedBlocks: lru.NewSet[chainhash.Hash](checkedBlockCacheSize),
	}
	b.stateSnapshot = newBestState(node, 0, 1, 1, time.Unix(node.timestamp, 0))
	return b
}

// testNoncePrng provides a deterministic prng for the nonce in generated fake
// nodes.  This ensures that the nodes have unique hashes.
var testNoncePrng = mrand.New(mrand.NewSource(0))

// newFakeNode creates a block node connected to the passed parent with the
// provided fields populated and fake values for the other fields.
func newFakeNode(parent *blockNode, blockVersion int32, bits uint32, timestamp time.Time) *blockNode {
	// Make up a header and create a block node from it.
	var prevHash chainhash.Hash
	var height uint32
	if parent != nil {
		prevHash = parent.hash
		height = uint32(parent.height + 1)
	}
	header := &wire.BlockHeader{
		Version:   blockVersion,
		PrevBlock: prevHash,
		Bits:      bits,
		Height:    height,
		Timestamp: timestamp,
		Nonce:     testNoncePrng.Uint32(),
	}
	node := newBlockNode(header, parent)
	node.status = statusHaveData | statusHaveUndo | statusChecked
	node.validity = validityScripts
	node.numTxns = 1
	node.isFullyLinked = parent == nil || parent.isFullyLinked
	return node
}

// chainedFakeNodes returns the specified number of nodes constructed such that
// each subsequent node points to the previous one to create a chain.  The first
// node will point to the passed parent which can be nil if desired.
func chainedFakeNodes(parent *blockNode, numNodes int) []*blockNode {
	nodes := make([]*blockNode, numNodes)
	tip := parent
	blockTime := time.Now()
	bits := uint32(0x207fffff)
	if tip != nil {
		blockTime = time.Unix(tip.timestamp, 0)
		bits = tip.bits
	}
	for i := 0; i < numNodes; i++ {
		blockTime = blockTime.Add(time.Second)
		node := newFakeNode(tip, 4, bits, blockTime)
		tip = node

		nodes[i] = node
	}
	return nodes
}

// chainedFakeSkipListNodes returns the specified number of nodes populated with
// only the fields specifically needed to test the skip list functionality and
// constructed such that each subsequent node points to the previous one to
// create a chain.  The first node will point to the passed parent which can be
// nil if desired.
func chainedFakeSkipListNodes(parent *blockNode, numNodes int) []*blockNode {
	nodes := make([]*blockNode, numNodes)
	for i := 0; i < numNodes; i++ {
		node := &blockNode{parent: parent, height: int64(i)}
		if parent != nil {
			node.skipToAncestor = nodes[calcSkipListHeight(int64(i))]
		}
		parent = node

		nodes[i] = node
	}
	return nodes
}

// branchTip is a convenience function to grab the tip of a chain of block nodes
// created via chainedFakeNodes.
func branchTip(nodes []*blockNode) *blockNode {
	return nodes[len(nodes)-1]
}

// spendableOut represents a transaction output that is spendable along with
// additional metadata such as the block it's in and how much it pays.
type spendableOut struct {
	prevOut wire.OutPoint
	amount  int64
}

// makeSpendableOut returns a spendable output for the given transaction and
// output index.
func makeSpendableOut(tx *wire.MsgTx, txOutIndex uint32) spendableOut {
	return spendableOut{
		prevOut: wire.OutPoint{
			Hash:  tx.TxHash(),
			Index: txOutIndex,
			Tree:  wire.TxTreeRegular,
		},
		amount: tx.TxOut[txOutIndex].Value,
	}
}

// testGenerator houses state used to ease the process of generating fully
// valid and solved blocks for the regression test network.  Blocks are
// referenced by name.
type testGenerator struct {
	params       *chaincfg.Params
	blocks       map[string]*wire.MsgBlock
	blockNames   map[chainhash.Hash]string
	outputValues map[wire.OutPoint]int64
	tipName      string
}

// newTestGenerator returns a generator with the genesis block of the provided
// network registered as "genesis".
func newTestGenerator(params *chaincfg.Params) *testGenerator {
	genesis := params.GenesisBlock
	return &testGenerator{
		params:       params,
		blocks:       map[string]*wire.MsgBlock{"genesis": genesis},
		blockNames:   map[chainhash.Hash]string{genesis.BlockHash(): "genesis"},
		outputValues: make(map[wire.OutPoint]int64),
		tipName:      "genesis",
	}
}

// BlockByName returns the block associated with the provided block name.  It
// will panic if the specified block name does not exist.
func (g *testGenerator) BlockByName(blockName string) *wire.MsgBlock {
	block, ok := g.blocks[blockName]
	if !ok {
		panic("block name " + blockName + " does not exist")
	}
	return block
}

// BlockName returns the name of the block with the provided hash or "(nil)"
// when it is not known.
func (g *testGenerator) BlockName(hash *chainhash.Hash) string {
	name, ok := g.blockNames[*hash]
	if !ok {
		return "(nil)"
	}
	return name
}

// TipName returns the name of the most recently generated block.
func (g *testGenerator) TipName() string {
	return g.tipName
}

// CoinbaseOut returns the spendable coinbase output of the named block.
func (g *testGenerator) CoinbaseOut(blockName string) spendableOut {
	return makeSpendableOut(g.BlockByName(blockName).Transactions[0], 0)
}

// createCoinbaseTx returns a coinbase transaction paying the provided amount
// to an anyone can spend script.  The signature script commits to the height
// and an output commits to the block name so every coinbase has a unique
// hash.
func createCoinbaseTx(height int64, blockName string, amount int64) *wire.MsgTx {
	sigScript, err := txscript.NewScriptBuilder().AddInt64(height).
		AddData([]byte("xecd")).Script()
	if err != nil {
		panic(err)
	}
	tagScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).
		AddInt64(height).AddData([]byte(blockName)).Script()
	if err != nil {
		panic(err)
	}

	tx := wire.NewMsgTx()
	tx.Version = 1
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex, wire.TxTreeRegular),
		Sequence:        wire.MaxTxInSequenceNum,
		ValueIn:         wire.NullValueIn,
		BlockHeight:     wire.NullBlockHeight,
		BlockIndex:      wire.NullBlockIndex,
		SignatureScript: sigScript,
	})
	tx.AddTxOut(wire.NewTxOut(amount, opTrueScript))
	tx.AddTxOut(wire.NewTxOut(0, tagScript))
	return tx
}

// CreateSpendTx creates a transaction that spends from the provided spendable
// output and includes an additional unique OP_RETURN output to ensure the
// transaction ends up with a unique hash.  The script is a simple OP_TRUE
// script which avoids the need to track addresses and signature scripts in
// the tests.  The fee is the amount subtracted from the spent output.
func (g *testGenerator) CreateSpendTx(spend *spendableOut, fee int64) *wire.MsgTx {
	return g.CreateSpendTxMulti([]*spendableOut{spend}, 1, fee)
}

// CreateSpendTxMulti creates a transaction that spends all of the provided
// outputs and splits the total, less the provided fee, evenly across the
// provided number of anyone can spend outputs.
func (g *testGenerator) CreateSpendTxMulti(spends []*spendableOut, numOutputs int, fee int64) *wire.MsgTx {
	tx := wire.NewMsgTx()
	tx.Version = 1
	var total int64
	for _, spend := range spends {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: spend.prevOut,
			Sequence:         wire.MaxTxInSequenceNum,
			ValueIn:          spend.amount,
			BlockHeight:      wire.NullBlockHeight,
			BlockIndex:       wire.NullBlockIndex,
		})
		total += spend.amount
	}
	remaining := total - fee
	each := remaining / int64(numOutputs)
	for i := 0; i < numOutputs; i++ {
		amount := each
		if i == numOutputs-1 {
			amount = remaining - each*int64(numOutputs-1)
		}
		tx.AddTxOut(wire.NewTxOut(amount, opTrueScript))
	}
	uniqueScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_RETURN).
		AddData(spends[0].prevOut.Hash[:]).
		AddInt64(int64(spends[0].prevOut.Index)).Script()
	if err != nil {
		panic(err)
	}
	tx.AddTxOut(wire.NewTxOut(0, uniqueScript))
	return tx
}

// calcFee returns the fee paid by the provided transaction based on the
// outputs known to the generator.  Unknown inputs are ignored.
func (g *testGenerator) calcFee(tx *wire.MsgTx) int64 {
	var in, out int64
	for _, txIn := range tx.TxIn {
		in += g.outputValues[txIn.PreviousOutPoint]
	}
	for _, txOut := range tx.TxOut {
		out += txOut.Value
	}
	if in < out {
		return 0
	}
	return in - out
}

// sortTxnsCanonically sorts the provided transactions by their hash.
func sortTxnsCanonically(txns []*wire.MsgTx) {
	sort.Slice(txns, func(i, j int) bool {
		hi, hj := txns[i].TxHash(), txns[j].TxHash()
		return bytes.Compare(hi[:], hj[:]) < 0
	})
}

// solveBlock attempts to find a nonce which makes the passed block header hash
// to a value less than the target difficulty.  The regression test network
// target is so easy that only a few attempts are typically needed.
func solveBlock(header *wire.BlockHeader, params *chaincfg.Params) {
	for nonce := uint32(0); ; nonce++ {
		header.Nonce = nonce
		hash := header.BlockHash()
		err := standalone.CheckProofOfWork(&hash, header.Bits, params.PowLimit)
		if err == nil {
			return
		}
	}
}

// NextBlock builds a new block that extends the named parent block with the
// provided transactions after the coinbase.  The coinbase pays the subsidy
// plus the fees of the transactions.  The transactions are sorted
// canonically, the merkle root is calculated, and the block is solved after
// the provided mungers are applied, so mungers are free to change anything
// but the header fields that are calculated.
func (g *testGenerator) NextBlock(blockName, parentName string, txns []*wire.MsgTx, mungers ...func(*wire.MsgBlock)) *wire.MsgBlock {
	if _, ok := g.blocks[blockName]; ok {
		panic("block name " + blockName + " already exists")
	}
	parent := g.BlockByName(parentName)
	height := int64(parent.Header.Height) + 1

	var fees int64
	for _, tx := range txns {
		fees += g.calcFee(tx)
	}
	subsidy := CalcBlockSubsidy(height, g.params)
	coinbase := createCoinbaseTx(height, blockName, subsidy+fees)

	blockTxns := make([]*wire.MsgTx, 0, len(txns)+1)
	blockTxns = append(blockTxns, txns...)
	sortTxnsCanonically(blockTxns)
	blockTxns = append([]*wire.MsgTx{coinbase}, blockTxns...)

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   4,
			PrevBlock: parent.BlockHash(),
			Bits:      parent.Header.Bits,
			Height:    uint32(height),
			Timestamp: parent.Header.Timestamp.Add(10 * time.Minute),
		},
		Transactions: blockTxns,
	}
	for _, munge := range mungers {
		munge(block)
	}
	block.Header.MerkleRoot = standalone.CalcTxTreeMerkleRoot(block.Transactions)
	solveBlock(&block.Header, g.params)

	// Track the values of the outputs so the fees of transactions spending
	// them are known.
	for _, tx := range block.Transactions {
		txHash := tx.TxHash()
		for i, txOut := range tx.TxOut {
			outpoint := wire.OutPoint{Hash: txHash, Index: uint32(i)}
			g.outputValues[outpoint] = txOut.Value
		}
	}

	g.blocks[blockName] = block
	g.blockNames[block.BlockHash()] = blockName
	g.tipName = blockName
	return block
}

// chainHarness provides a test harness which encapsulates a test instance, a
// block generator instance, and a chain instance backed by databases in a
// temporary directory to provide a more convenient API to the tests.
type chainHarness struct {
	*testGenerator

	t             *testing.T
	params        *chaincfg.Params
	dataDir       string
	blockFileSize uint64
	dbs           *testChainDBs
	chain         *BlockChain

	ntfnsMtx sync.Mutex
	ntfns    []*Notification
}

// newChainHarness creates and returns a new instance of a chain harness for
// the provided network parameters.
func newChainHarness(t *testing.T, params *chaincfg.Params) *chainHarness {
	t.Helper()

	h := &chainHarness{
		testGenerator: newTestGenerator(params),
		t:             t,
		params:        params,
		dataDir:       t.TempDir(),
	}
	h.open()
	t.Cleanup(func() {
		if h.dbs != nil {
			h.dbs.close()
		}
	})
	return h
}

// open opens the databases in the data directory of the harness and creates
// a new chain instance on top of them.
func (h *chainHarness) open() {
	h.t.Helper()

	h.dbs = openTestChainDBs(h.t, h.dataDir, h.blockFileSize)
	chain, err := newTestChainWithDBs(h.params, h.dbs, h.handleNotification)
	if err != nil {
		h.dbs.close()
		h.dbs = nil
		h.t.Fatalf("failed to create chain instance: %v", err)
	}
	h.chain = chain
}

// Restart flushes the chain state, closes the databases, and creates a new
// chain instance from them.
func (h *chainHarness) Restart() {
	h.t.Helper()

	if err := h.chain.FlushStateToDisk(FlushAlways); err != nil {
		h.t.Fatalf("failed to flush chain state: %v", err)
	}
	h.dbs.close()
	h.dbs = nil
	h.open()
}

// handleNotification records the provided notification.
func (h *chainHarness) handleNotification(n *Notification) {
	h.ntfnsMtx.Lock()
	h.ntfns = append(h.ntfns, n)
	h.ntfnsMtx.Unlock()
}

// TakeNotifications returns the notifications of the provided type received
// since the last call and forgets all of the received notifications.
func (h *chainHarness) TakeNotifications(typ NotificationType) []*Notification {
	h.ntfnsMtx.Lock()
	defer h.ntfnsMtx.Unlock()

	var matched []*Notification
	for _, n := range h.ntfns {
		if n.Type == typ {
			matched = append(matched, n)
		}
	}
	h.ntfns = nil
	return matched
}

// ResetNotifications forgets all of the received notifications.
func (h *chainHarness) ResetNotifications() {
	h.ntfnsMtx.Lock()
	h.ntfns = nil
	h.ntfnsMtx.Unlock()
}

// processBlock processes the named block and returns the fork length and
// error.
func (h *chainHarness) processBlock(blockName string) (int64, error) {
	msgBlock := h.BlockByName(blockName)
	block := dcrutil.NewBlock(msgBlock)
	h.t.Logf("Testing block %q (hash %s, height %d)", blockName, block.Hash(),
		msgBlock.Header.Height)
	return h.chain.ProcessBlock(block, BFNone)
}

// AcceptBlock processes the block associated with the given name in the
// harness generator and expects it to be accepted to the main chain.
func (h *chainHarness) AcceptBlock(blockName string) {
	h.t.Helper()

	forkLen, err := h.processBlock(blockName)
	if err != nil {
		h.t.Fatalf("block %q should have been accepted: %v", blockName, err)
	}

	// Ensure the block was accepted to the main chain as indicated by a fork
	// length of zero.
	if forkLen != 0 {
		h.t.Fatalf("block %q unexpected fork length -- got %d, want 0",
			blockName, forkLen)
	}
	h.ExpectTip(blockName)
}

// AcceptBlockData processes the block associated with the given name in the
// harness generator and expects it to be accepted, but not necessarily to the
// main chain.
func (h *chainHarness) AcceptBlockData(blockName string) {
	h.t.Helper()

	if _, err := h.processBlock(blockName); err != nil {
		h.t.Fatalf("block %q should have been accepted: %v", blockName, err)
	}
}

// AcceptedToSideChainWithExpectedTip processes the named block and expects it
// to be accepted to a side chain while the current best chain tip is the
// provided block.
func (h *chainHarness) AcceptedToSideChainWithExpectedTip(blockName, tipName string) {
	h.t.Helper()

	forkLen, err := h.processBlock(blockName)
	if err != nil {
		h.t.Fatalf("block %q should have been accepted: %v", blockName, err)
	}
	if forkLen == 0 {
		h.t.Fatalf("block %q unexpectedly extended the main chain",
			blockName)
	}
	h.ExpectTip(tipName)
}

// AcceptTipBlock processes the most recently generated block and expects it
// to be accepted to the main chain.
func (h *chainHarness) AcceptTipBlock() {
	h.t.Helper()

	h.AcceptBlock(h.TipName())
}

// RejectBlock expects the block associated with the given name in the harness
// generator to be rejected with the provided error kind.
func (h *chainHarness) RejectBlock(blockName string, kind ErrorKind) {
	h.t.Helper()

	_, err := h.processBlock(blockName)
	if err == nil {
		h.t.Fatalf("block %q should not have been accepted", blockName)
	}

	// Ensure the error matches the value specified in the test instance.
	if !errors.Is(err, kind) {
		h.t.Fatalf("block %q does not have expected reject code -- got %v, "+
			"want %v", blockName, err, kind)
	}
}

// ExpectTip expects the provided block to be the current tip of the main chain
// associated with the harness generator.
func (h *chainHarness) ExpectTip(tipName string) {
	h.t.Helper()

	// Ensure hash and height match.
	wantTip := h.BlockByName(tipName)
	best := h.chain.BestSnapshot()
	if best.Hash != wantTip.BlockHash() ||
		best.Height != int64(wantTip.Header.Height) {
		h.t.Fatalf("block %q (hash %s, height %d) should be the current tip "+
			"-- got %q (hash %s, height %d)", tipName, wantTip.BlockHash(),
			wantTip.Header.Height, h.BlockName(&best.Hash), best.Hash,
			best.Height)
	}
	if cacheHash := h.chain.UtxoCache().BestHash(); cacheHash != best.Hash {
		h.t.Fatalf("utxo cache best block %q does not match tip %q",
			h.BlockName(&cacheHash), tipName)
	}
}

// ExpectStatus returns the status of the named block and fails the test when
// the block is unknown.
func (h *chainHarness) ExpectStatus(blockName string) BlockStatus {
	h.t.Helper()

	hash := h.BlockByName(blockName).BlockHash()
	status, err := h.chain.BlockStatusByHash(&hash)
	if err != nil {
		h.t.Fatalf("unable to fetch status of block %q: %v", blockName, err)
	}
	return status
}

// ExpectUtxo expects the provided output to be unspent or not according to
// the provided flag.
func (h *chainHarness) ExpectUtxo(out spendableOut, unspent bool) {
	h.t.Helper()

	entry, err := h.chain.FetchUtxoEntry(out.prevOut)
	if err != nil {
		h.t.Fatalf("unable to fetch utxo %v: %v", out.prevOut, err)
	}
	if gotUnspent := entry != nil; gotUnspent != unspent {
		h.t.Fatalf("mismatched unspent state for output %v -- got %v, want %v",
			out.prevOut, gotUnspent, unspent)
	}
	if unspent && entry.Amount() != out.amount {
		h.t.Fatalf("mismatched amount for output %v -- got %d, want %d",
			out.prevOut, entry.Amount(), out.amount)
	}
}

// GenerateChain generates and accepts the provided number of blocks on top
// of the named parent.  The blocks are named with the provided prefix
// followed by their index starting at zero.  It returns the name of the last
// block.
func (h *chainHarness) GenerateChain(prefix, parentName string, numBlocks int) string {
	h.t.Helper()

	for i := 0; i < numBlocks; i++ {
		name := prefix + itoa(i)
		h.NextBlock(name, parentName, nil)
		h.AcceptBlock(name)
		parentName = name
	}
	return parentName
}

// itoa converts the provided integer to its decimal string form.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
