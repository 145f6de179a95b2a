/*
Package calcify stores the results of numerical computations in
self-describing containers that round-trip through a text and a binary
encoding.

We implement:

1. Records, small value types (F64, ThreeVec, FourMat, Bin, Point, ...) that
know their own text and binary encodings.

2. Collections, ordered sequences of one record type.

3. Trees, a set of string fields plus named branches, each branch a collection
tagged with its record subtype, so that a reader can decode it without knowing
the types up front.

4. Feed trees, a set of string fields plus named collections of a single record
type, meant to be appended to while a computation runs.

On top of that, FeedJournal makes a feed tree durable while it grows, and
Archive keeps named checkpoints in a single file.

# Technical Details

**Subtypes.**
The set of branch tags is closed: f64, String, ThreeVec, ThreeMat, FourVec,
FourMat, Bin, Point, PointBin, and Object. Object branches can be written but
not read back.

**Text encoding**
comes in two forms. The verbose form spells records as objects
({"x":1,"y":2}), the compact form as arrays ([1,2]). Decoders accept both.
Object keys are written in sorted order.

**Binary encoding** is msgpack. A container is a map of its fields plus one
inner map, "branches" for a tree and "feeds" for a feed tree. A branch is
a two-entry map, "subtype" then "branch".

## Archive encoding

**Value**: value header, then the container in binary encoding, zstd-compressed
if flagged.

**Value header**:
1. Flags (uvarint).
2. Kind (uvarint): 1 for a tree, 2 for a feed tree.
3. Creation time (uvarint, Unix seconds).
4. Binary size before compression (uvarint).
5. Feed subtype (uvarint length, then bytes; empty for trees).

## Feed journal encoding

Each change is one journal record holding a msgpack array [op, key, arg].
The first op of a journal creates the feed tree and names its record type.
*/
package calcify
