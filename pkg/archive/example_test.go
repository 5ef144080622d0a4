package archive_test

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/roomclient/pkg/archive"
	"github.com/vango-dev/roomclient/pkg/room"
)

func ExampleStore() {
	ctx := context.Background()
	client := s3.New(s3.Options{Region: "eu-west-1", Credentials: aws.AnonymousCredentials{}})
	store := archive.NewStore(client, "my-bucket", "rooms/")

	var session *room.Session // a session that has entered its room
	snap, err := archive.Capture(session)
	if err != nil {
		fmt.Println(err)
		return
	}
	key, err := store.Save(ctx, snap)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("saved", key)
}
