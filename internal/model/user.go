package model

import "time"

// User represents a profile row in the `users` table.  Credentials are not
// part of the profile: they live with the identity provider and are only
// ever checked through it.
//
// Fields:
//  ID        – identity provider account id, reused as the profile key.
//  Name      – display name.
//  Email     – unique, lower-cased email address.
//  DOB       – date of birth (date only, UTC midnight).
//  CreatedAt – timestamp of creation.
type User struct {
    ID        string    // users.id
    Name      string    // users.name
    Email     string    // users.email
    DOB       time.Time // users.dob
    CreatedAt time.Time // users.created_at
}

// Initial returns the upper-cased first letter of the display name, falling
// back to the email when the name is blank.
func (u *User) Initial() string {
    for _, s := range []string{u.Name, u.Email} {
        for _, r := range s {
            if r == ' ' {
                continue
            }
            return string(toUpper(r))
        }
    }
    return ""
}

func toUpper(r rune) rune {
    if r >= 'a' && r <= 'z' {
        return r - 32
    }
    return r
}
