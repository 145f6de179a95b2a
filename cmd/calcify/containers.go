package main

import (
	"fmt"
	"slices"

	"github.com/calcify-go/calcify"
)

// container is what Tree and every FeedTree[T] have in common.
type container interface {
	calcify.Record
	Name() string
	Field(key string) (string, bool)
	FieldKeys() []string
}

// feedType binds the generic feed tree operations to one record type.
type feedType struct {
	subtype calcify.Subtype
	read    func(path string) (container, error)
	put     func(a *calcify.Archive, name string, c container) error
	get     func(a *calcify.Archive, name string) (container, error)
	feeds   func(c container) []feedInfo
}

type feedInfo struct {
	Key string
	Len int
}

func feedTypeFor[T calcify.Record, PT calcify.Decodable[T]](st calcify.Subtype) *feedType {
	return &feedType{
		subtype: st,
		read: func(path string) (container, error) {
			return asContainer(calcify.ReadFeedTree[T, PT](path))
		},
		put: func(a *calcify.Archive, name string, c container) error {
			ft, ok := c.(*calcify.FeedTree[T])
			if !ok {
				return fmt.Errorf("%s is not a feed tree of %s", c.Name(), st)
			}
			return calcify.PutFeedTree(a, name, ft)
		},
		get: func(a *calcify.Archive, name string) (container, error) {
			return asContainer(calcify.GetFeedTree[T, PT](a, name))
		},
		feeds: func(c container) []feedInfo {
			ft := c.(*calcify.FeedTree[T])
			var result []feedInfo
			for _, key := range ft.FeedKeys() {
				result = append(result, feedInfo{key, ft.Feed(key).Len()})
			}
			return result
		},
	}
}

// asContainer avoids wrapping a nil pointer in a non-nil interface.
func asContainer[C container](c C, err error) (container, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

var feedTypes = []*feedType{
	feedTypeFor[calcify.F64](calcify.SubtypeF64),
	feedTypeFor[calcify.Str](calcify.SubtypeString),
	feedTypeFor[calcify.ThreeVec](calcify.SubtypeThreeVec),
	feedTypeFor[calcify.ThreeMat](calcify.SubtypeThreeMat),
	feedTypeFor[calcify.FourVec](calcify.SubtypeFourVec),
	feedTypeFor[calcify.FourMat](calcify.SubtypeFourMat),
	feedTypeFor[calcify.Bin](calcify.SubtypeBin),
	feedTypeFor[calcify.Point](calcify.SubtypePoint),
	feedTypeFor[calcify.PointBin](calcify.SubtypePointBin),
}

func lookupFeedType(name string) (*feedType, error) {
	i := slices.IndexFunc(feedTypes, func(ft *feedType) bool {
		return string(ft.subtype) == name
	})
	if i < 0 {
		return nil, fmt.Errorf("unknown feed type %q", name)
	}
	return feedTypes[i], nil
}

// readContainer reads a Tree, or a FeedTree when feeds names a record type.
func readContainer(path, feeds string) (container, *feedType, error) {
	if feeds == "" {
		t, err := calcify.ReadTree(path)
		if err != nil {
			return nil, nil, err
		}
		return t, nil, nil
	}
	ft, err := lookupFeedType(feeds)
	if err != nil {
		return nil, nil, err
	}
	c, err := ft.read(path)
	if err != nil {
		return nil, nil, err
	}
	return c, ft, nil
}
