package testUtils

import (
	. "github.com/smartystreets/goconvey/convey"
)

// The helpers below receive the function instead of a store instance to avoid
// circular dependencies and to allow reuse by any method with the same signature.

func GetHit(get func(key string, result interface{}) (bool, error), key string, expectedValue int) {
	var data int
	found, err := get(key, &data)
	So(err, ShouldBeNil)
	So(found, ShouldBeTrue)
	So(data, ShouldEqual, expectedValue)
}

func GetMiss(get func(key string, result interface{}) (bool, error), key string) {
	var data int
	found, err := get(key, &data)
	So(err, ShouldBeNil)
	So(found, ShouldBeFalse)
}

func GetError(get func(key string, result interface{}) (bool, error), key string) {
	var data int
	_, err := get(key, &data)
	So(err, ShouldNotBeNil)
}
